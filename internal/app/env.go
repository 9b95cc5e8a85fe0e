package app

import (
    "bufio"
    "errors"
    "os"
    "strings"
)

// LoadEnvFiles loads dotenv files of KEY=VALUE pairs into the process
// environment. Later files override earlier ones, but a variable that was
// already set to a non-empty value before the call is left alone, so a token
// exported in the shell beats one in .env. Blank lines, '#' comments and an
// optional leading "export " are accepted. Values are not expanded.
func LoadEnvFiles(paths ...string) error {
    loaded := map[string]bool{}
    for _, p := range paths {
        if strings.TrimSpace(p) == "" {
            continue
        }
        if err := loadEnvFile(strings.TrimSpace(p), loaded); err != nil {
            // Missing files are not fatal; continue to next path
            if errors.Is(err, os.ErrNotExist) {
                continue
            }
            return err
        }
    }
    return nil
}

func loadEnvFile(path string, loaded map[string]bool) error {
    f, err := os.Open(path)
    if err != nil {
        return err
    }
    defer f.Close()

    scanner := bufio.NewScanner(f)
    for scanner.Scan() {
        key, val, ok := parseEnvLine(scanner.Text())
        if !ok {
            continue
        }
        if os.Getenv(key) != "" && !loaded[key] {
            continue
        }
        _ = os.Setenv(key, val)
        loaded[key] = true
    }
    return scanner.Err()
}

// parseEnvLine splits one dotenv line. Quoted values keep '#' and spaces;
// unquoted values end at " #".
func parseEnvLine(line string) (key, val string, ok bool) {
    line = strings.TrimSpace(line)
    if line == "" || strings.HasPrefix(line, "#") {
        return "", "", false
    }
    line = strings.TrimPrefix(line, "export ")
    eq := strings.IndexByte(line, '=')
    if eq <= 0 {
        return "", "", false
    }
    key = strings.TrimSpace(line[:eq])
    val = strings.TrimSpace(line[eq+1:])
    if len(val) >= 2 && (val[0] == '"' || val[0] == '\'') {
        if end := strings.IndexByte(val[1:], val[0]); end >= 0 {
            return key, val[1 : end+1], true
        }
    }
    if i := strings.Index(val, " #"); i >= 0 {
        val = strings.TrimSpace(val[:i])
    }
    return key, val, true
}
