package dispatch

import (
	"fmt"
	"regexp"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/automation-cli/internal/rules"
)

var (
	printer     = message.NewPrinter(language.BrazilianPortuguese)
	placeholder = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)
)

// brl formats an amount as Brazilian reais, e.g. "R$ 1.500,00".
func brl(m rules.Money) string {
	return printer.Sprintf("R$ %.2f", float64(m))
}

// brDate formats a date as dd/mm/yyyy.
func brDate(t time.Time) string {
	return t.Format("02/01/2006")
}

// render substitutes {{name}} placeholders from vars. Unknown names are left
// in place so a template typo shows up in the delivered body.
func render(body string, vars map[string]string) string {
	return placeholder.ReplaceAllStringFunc(body, func(m string) string {
		name := placeholder.FindStringSubmatch(m)[1]
		if v, ok := vars[name]; ok {
			return v
		}
		return m
	})
}

// calibrationStatus is the human status of a calibration date.
func calibrationStatus(daysRemaining int) string {
	if daysRemaining < 0 {
		return "VENCIDA"
	}
	return fmt.Sprintf("vence em %d dias", daysRemaining)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, one)
	}
	return fmt.Sprintf("%d %s", n, many)
}
