package analytics

import (
	"encoding/json"
	"time"

	"github.com/liamAduDonkor/adesua-sub000/core/scope"
)

const notApplicable = "n/a"

// Percent is a ratio in [0, 100]. It is not applicable when its denominator is zero.
type Percent struct {
	Value      float64
	Applicable bool
}

func percentOf(n, total int) Percent {
	if total == 0 {
		return Percent{}
	}
	return Percent{Value: float64(n) * 100 / float64(total), Applicable: true}
}

func (p Percent) MarshalJSON() ([]byte, error) {
	if !p.Applicable {
		return json.Marshal(notApplicable)
	}
	return json.Marshal(p.Value)
}

func (p *Percent) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*p = Percent{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = Percent{Value: v, Applicable: true}
	return nil
}

type (
	FieldStats struct {
		Count  int     `json:"count"`
		Mean   float64 `json:"mean"`
		Min    float64 `json:"min"`
		Max    float64 `json:"max"`
		StdDev float64 `json:"std_dev"`
	}

	Summary struct {
		Count  int                   `json:"count"`
		Fields map[string]FieldStats `json:"fields"`
	}

	Bucket struct {
		Label   string  `json:"label"`
		Count   int     `json:"count"`
		Percent Percent `json:"percent"`
	}

	Rank struct {
		Position int     `json:"position"`
		GroupKey string  `json:"group_key"`
		Mean     float64 `json:"mean"`
		Count    int     `json:"count"`
		Share    Percent `json:"share"`
	}

	// Result is derived data. It is only persisted as part of a report payload snapshot.
	Result struct {
		Query        Query        `json:"query"`
		Scope        scope.Filter `json:"scope"`
		Summary      Summary      `json:"summary"`
		Distribution []Bucket     `json:"distribution,omitempty"`
		Rankings     []Rank       `json:"rankings,omitempty"`
		GeneratedAt  time.Time    `json:"generated_at"`
	}
)

// Bucket returns the distribution bucket labelled `label`.
func (res Result) Bucket(label string) (Bucket, bool) {
	for _, b := range res.Distribution {
		if b.Label == label {
			return b, true
		}
	}
	return Bucket{}, false
}
