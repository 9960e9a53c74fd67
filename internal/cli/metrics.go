package cli

import (
	"fmt"
	"github.com/prometheus/client_golang/prometheus"
	"io"
	"sort"
	"strings"
)

// WriteCounters - Writes every counter gathered from gatherer whose name starts with prefix, one line per label
// combination, sorted by name and labels
func WriteCounters(w io.Writer, gatherer prometheus.Gatherer, prefix string) (err error) {
	families, err := gatherer.Gather()
	if err != nil {
		err = fmt.Errorf("unable to gather metrics: %w", err)
		return
	}

	var lines []string
	for _, family := range families {
		if !strings.HasPrefix(family.GetName(), prefix) {
			continue
		}
		for _, metric := range family.GetMetric() {
			if metric.GetCounter() == nil {
				continue
			}
			labels := make([]string, 0, len(metric.GetLabel()))
			for _, label := range metric.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", label.GetName(), label.GetValue()))
			}
			lines = append(lines, fmt.Sprintf("%s{%s} %g", family.GetName(), strings.Join(labels, ","), metric.GetCounter().GetValue()))
		}
	}
	sort.Strings(lines)

	for _, line := range lines {
		_, err = fmt.Fprintln(w, line)
		if err != nil {
			return
		}
	}

	return
}
