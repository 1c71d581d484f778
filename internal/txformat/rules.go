package txformat

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Rules - ключевые слова для определения категории по описанию платежа.
// Проверяются по порядку: transfer, card_payment, salary, service_payment.
type Rules struct {
	Transfer       []string `yaml:"transfer"`
	CardPayment    []string `yaml:"card_payment"`
	Salary         []string `yaml:"salary"`
	ServicePayment []string `yaml:"service_payment"`
}

// DefaultRules - формулировки шведских банков (Nordea и т.п.)
func DefaultRules() Rules {
	return Rules{
		Transfer:       []string{"Överföring"},
		CardPayment:    []string{"Kortköp"},
		Salary:         []string{"Lön"},
		ServicePayment: []string{"Betalning"},
	}
}

// LoadRules читает YAML с ключевыми словами. Пустые секции берутся из DefaultRules.
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("reading category rules: %w", err)
	}
	return ParseRules(data)
}

func ParseRules(data []byte) (Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Rules{}, fmt.Errorf("parsing category rules: %w", err)
	}

	def := DefaultRules()
	if len(r.Transfer) == 0 {
		r.Transfer = def.Transfer
	}
	if len(r.CardPayment) == 0 {
		r.CardPayment = def.CardPayment
	}
	if len(r.Salary) == 0 {
		r.Salary = def.Salary
	}
	if len(r.ServicePayment) == 0 {
		r.ServicePayment = def.ServicePayment
	}
	return r, nil
}
