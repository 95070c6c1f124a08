package mlscore

import (
	"fmt"
	"time"

	"github.com/opensource-finance/kite/internal/domain"
)

// Feature column names shared with the training exporter. The training
// job must use the same names and the same date transform.
const (
	colValue         = "value"
	colDate          = "date"
	colRecurring     = "recurring"
	colFirstPurchase = "first_purchase"
	colRefunded      = "refunded"
	colCategory      = "category"
	colCollector     = "collector"
	colAccountRef    = "account_ref"
)

// dateEpoch maps a transaction date to its feature value: Unix epoch
// seconds, or 0 when the date is missing or unparseable. This transform
// must stay identical to the training-time transform.
func dateEpoch(date string) float64 {
	if date == "" {
		return 0
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, date); err == nil {
			return float64(t.Unix())
		}
	}
	return 0
}

// rawFeatures extracts the raw column values from a transaction.
// Returns an error when a required field is absent.
func rawFeatures(tx *domain.Transaction) (numeric map[string]float64, boolean map[string]bool, categorical map[string]string, err error) {
	if tx.Category == "" || tx.Collector == "" || tx.AccountRef == "" {
		return nil, nil, nil, fmt.Errorf("missing required transaction field")
	}

	numeric = map[string]float64{
		colValue: tx.Value.InexactFloat64(),
		colDate:  dateEpoch(tx.Date),
	}
	boolean = map[string]bool{
		colRecurring:     tx.Recurring,
		colFirstPurchase: tx.FirstPurchase,
		colRefunded:      tx.Refunded,
	}
	categorical = map[string]string{
		colCategory:   tx.Category,
		colCollector:  tx.Collector,
		colAccountRef: tx.AccountRef,
	}
	return numeric, boolean, categorical, nil
}

// featureVector applies the fitted preprocessor to a transaction.
// Column order follows the preprocessor spec: numeric, boolean,
// categorical one-hot blocks.
func featureVector(pre *preprocessorSpec, tx *domain.Transaction) ([]float64, error) {
	numeric, boolean, categorical, err := rawFeatures(tx)
	if err != nil {
		return nil, err
	}

	vec := make([]float64, 0, pre.featureCount())

	for _, col := range pre.Numeric {
		v, ok := numeric[col.Name]
		if !ok {
			return nil, fmt.Errorf("unknown numeric column %q", col.Name)
		}
		if col.Std != 0 {
			v = (v - col.Mean) / col.Std
		} else {
			v = v - col.Mean
		}
		vec = append(vec, v)
	}

	for _, name := range pre.Boolean {
		v, ok := boolean[name]
		if !ok {
			return nil, fmt.Errorf("unknown boolean column %q", name)
		}
		if v {
			vec = append(vec, 1)
		} else {
			vec = append(vec, 0)
		}
	}

	for _, col := range pre.Categorical {
		v, ok := categorical[col.Name]
		if !ok {
			return nil, fmt.Errorf("unknown categorical column %q", col.Name)
		}
		for _, cat := range col.Categories {
			if cat == v {
				vec = append(vec, 1)
			} else {
				vec = append(vec, 0)
			}
		}
	}

	return vec, nil
}
