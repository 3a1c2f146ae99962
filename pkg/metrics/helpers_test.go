package metrics

import (
	"fmt"

	dto "github.com/prometheus/client_model/go"
)

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, labelName, labelValue string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric family %q not gathered", name)
	}
	for _, m := range mf.GetMetric() {
		for _, pair := range m.GetLabel() {
			if pair.GetName() == labelName && pair.GetValue() == labelValue {
				return m.GetCounter().GetValue(), nil
			}
		}
	}
	return 0, fmt.Errorf("no %q series with %s=%q", name, labelName, labelValue)
}
