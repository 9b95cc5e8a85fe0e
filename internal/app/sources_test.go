package app

import (
	"reflect"
	"testing"
)

func TestNormalizeSources(t *testing.T) {
	in := []string{
		"https://MyCourses2.mcgill.ca/d2l/home/6605#top",
		"https://mycourses2.mcgill.ca/d2l/home/6605",
		"  ",
		"https://mycourses2.mcgill.ca/d2l/lms/dropbox/user/folders_list.d2l?ou=6605&utm_source=mail",
		"https://mycourses2.mcgill.ca/d2l/lms/dropbox/user/folders_list.d2l?ou=6605",
		"https://mycourses2.mcgill.ca/d2l/lms/quizzing/user/quizzes_list.d2l?ou=6605",
	}
	want := []string{
		"https://mycourses2.mcgill.ca/d2l/home/6605",
		"https://mycourses2.mcgill.ca/d2l/lms/dropbox/user/folders_list.d2l?ou=6605",
		"https://mycourses2.mcgill.ca/d2l/lms/quizzing/user/quizzes_list.d2l?ou=6605",
	}
	if got := normalizeSources(in); !reflect.DeepEqual(got, want) {
		t.Fatalf("normalizeSources:\n got %v\nwant %v", got, want)
	}
}
