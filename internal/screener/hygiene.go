package screener

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/seenimoa/chartscout/internal/datasource"
	"github.com/seenimoa/chartscout/pkg/models"
)

// Coerce converts a raw listing row into an Instrument. Numbers may carry
// thousands separators, a sign, or a trailing percent sign.
func Coerce(row models.ListingRow) (models.Instrument, error) {
	code := strings.TrimSpace(row.Code)
	if code == "" {
		return models.Instrument{}, fmt.Errorf("%w: empty code", datasource.ErrMalformedRecord)
	}

	price, err := parseNumber(row.Close)
	if err != nil || price < 0 {
		return models.Instrument{}, fmt.Errorf("%w: %s close %q", datasource.ErrMalformedRecord, code, row.Close)
	}
	vol, err := parseNumber(row.Volume)
	if err != nil || vol < 0 || vol != math.Trunc(vol) {
		return models.Instrument{}, fmt.Errorf("%w: %s volume %q", datasource.ErrMalformedRecord, code, row.Volume)
	}
	pct, err := parseNumber(strings.TrimSuffix(strings.TrimSpace(row.ChangePct), "%"))
	if err != nil {
		return models.Instrument{}, fmt.Errorf("%w: %s change %q", datasource.ErrMalformedRecord, code, row.ChangePct)
	}

	return models.Instrument{
		Code:      code,
		Name:      strings.TrimSpace(row.Name),
		Market:    row.Market,
		Close:     price,
		Volume:    int64(vol),
		ChangePct: pct,
	}, nil
}

// Clean coerces every row, dropping the malformed ones. The returned
// instruments keep listing order.
func Clean(rows []models.ListingRow) (instruments []models.Instrument, malformed int) {
	instruments = make([]models.Instrument, 0, len(rows))
	for _, r := range rows {
		inst, err := Coerce(r)
		if err != nil {
			malformed++
			continue
		}
		instruments = append(instruments, inst)
	}
	return instruments, malformed
}

func parseNumber(s string) (float64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	s = strings.TrimPrefix(s, "+")
	if s == "" {
		return 0, strconv.ErrSyntax
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, strconv.ErrRange
	}
	return v, nil
}
