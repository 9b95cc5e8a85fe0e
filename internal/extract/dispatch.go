package extract

import (
    "github.com/rs/zerolog"

    "github.com/hyperifyio/studysync/internal/item"
)

// Result is the outcome of one dispatch. Extractor is empty when no variant
// produced anything.
type Result struct {
    Extractor string
    Records   []item.Record
}

// Empty reports whether nothing was found on the page.
func (r Result) Empty() bool { return len(r.Records) == 0 }

// Dispatcher tries extractors in order and keeps the first non-empty result.
// Results are never merged across extractors.
type Dispatcher struct {
    Extractors []Extractor
    Logger     zerolog.Logger
}

// Default returns the standard priority order: calendar list, assignments
// table, quizzes table, home widget.
func Default(env Env) *Dispatcher {
    return &Dispatcher{
        Extractors: []Extractor{
            CalendarList{Env: env},
            AssignmentsTable{Env: env},
            QuizzesTable{Env: env},
            HomeUpcoming{Env: env},
        },
        Logger: env.Logger,
    }
}

// Dispatch runs the extractors in priority order against p.
func (d *Dispatcher) Dispatch(p *Page, prefs Prefs) Result {
    if p == nil || p.Doc == nil {
        return Result{}
    }
    for _, ex := range d.Extractors {
        recs := ex.Extract(p, prefs)
        if len(recs) == 0 {
            d.Logger.Debug().Str("extractor", ex.Name()).Msg("no match")
            continue
        }
        d.Logger.Debug().Str("extractor", ex.Name()).Int("records", len(recs)).Msg("extractor matched")
        return Result{Extractor: ex.Name(), Records: recs}
    }
    return Result{}
}
