package rendersvc

import (
	"sort"
	"strconv"

	"github.com/liamAduDonkor/adesua-sub000/core/analytics"
	"github.com/liamAduDonkor/adesua-sub000/core/report"
)

// section is one table of a rendered report.
type section struct {
	name   string
	header []string
	rows   [][]string
}

func decimal(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }

func percent(p analytics.Percent) string {
	if !p.Applicable {
		return "n/a"
	}
	return decimal(p.Value)
}

// sections lays a payload out as tables. Empty tables are left out, except the summary.
func sections(p report.Payload) []section {
	res := p.Analytics

	fields := make([]string, 0, len(res.Summary.Fields))
	for f := range res.Summary.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	summary := section{
		name:   "Summary",
		header: []string{"Field", "Count", "Mean", "Min", "Max", "Std dev"},
		rows:   [][]string{{"records", strconv.Itoa(res.Summary.Count), "", "", "", ""}},
	}
	for _, f := range fields {
		st := res.Summary.Fields[f]
		summary.rows = append(summary.rows, []string{
			f, strconv.Itoa(st.Count), decimal(st.Mean), decimal(st.Min), decimal(st.Max), decimal(st.StdDev),
		})
	}
	out := []section{summary}

	if len(res.Distribution) > 0 {
		dist := section{name: "Distribution", header: []string{"Label", "Count", "Percent"}}
		for _, b := range res.Distribution {
			dist.rows = append(dist.rows, []string{b.Label, strconv.Itoa(b.Count), percent(b.Percent)})
		}
		out = append(out, dist)
	}

	if len(res.Rankings) > 0 {
		ranks := section{name: "Rankings", header: []string{"Position", "Group", "Mean", "Count", "Share"}}
		for _, r := range res.Rankings {
			ranks.rows = append(ranks.rows, []string{
				strconv.Itoa(r.Position), r.GroupKey, decimal(r.Mean), strconv.Itoa(r.Count), percent(r.Share),
			})
		}
		out = append(out, ranks)
	}

	if len(p.Compliance) > 0 {
		comp := section{name: "Compliance", header: []string{"Subject", "Category", "Score", "Status", "Tier"}}
		for _, c := range p.Compliance {
			score := "n/a"
			if c.Scored {
				score = decimal(c.Score)
			}
			comp.rows = append(comp.rows, []string{c.SubjectID, string(c.Category), score, string(c.Status), string(c.Tier)})
		}
		out = append(out, comp)
	}
	return out
}
