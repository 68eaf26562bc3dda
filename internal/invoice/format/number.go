// Package format renders invoice numbers from organization templates.
package format

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const DefaultNumberTemplate = "INV-{SEQ6}"

var (
	ErrInvalidTemplate = errors.New("invalid_invoice_number_template")

	seqPadRe = regexp.MustCompile(`\{SEQ(\d+)\}`)
)

// InvoiceNumber renders template for the given billing period end and
// per-organization sequence. Supported tokens are {YYYY}, {YY}, {MM}, {SEQ}
// and {SEQn} (zero padded to n digits).
func InvoiceNumber(template string, periodEnd time.Time, seq int64) (string, error) {
	template = strings.TrimSpace(template)
	if template == "" {
		template = DefaultNumberTemplate
	}
	if seq <= 0 {
		return "", fmt.Errorf("%w: sequence %d", ErrInvalidTemplate, seq)
	}
	if !strings.Contains(template, "{SEQ") {
		return "", fmt.Errorf("%w: %q has no sequence token", ErrInvalidTemplate, template)
	}

	out := strings.NewReplacer(
		"{YYYY}", periodEnd.Format("2006"),
		"{YY}", periodEnd.Format("06"),
		"{MM}", periodEnd.Format("01"),
		"{SEQ}", strconv.FormatInt(seq, 10),
	).Replace(template)

	out = seqPadRe.ReplaceAllStringFunc(out, func(m string) string {
		width, err := strconv.Atoi(seqPadRe.FindStringSubmatch(m)[1])
		if err != nil || width <= 0 || width > 18 {
			return m
		}
		return fmt.Sprintf("%0*d", width, seq)
	})

	if strings.ContainsAny(out, "{}") {
		return "", fmt.Errorf("%w: unresolved token in %q", ErrInvalidTemplate, out)
	}
	return out, nil
}
