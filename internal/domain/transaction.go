package domain

import "github.com/shopspring/decimal"

type TransactionStatus string

const (
	StatusBooked  TransactionStatus = "booked"
	StatusPending TransactionStatus = "pending"
)

func (s TransactionStatus) IsValid() bool {
	return s == StatusBooked || s == StatusPending
}

type Transaction struct {
	// ID у агрегатора кодирует время: 2023-05-12-14.30.15.123456
	ID          string
	Amount      decimal.Decimal
	Currency    string
	Description string
	BookingDate string
	Status      TransactionStatus
}

func (t Transaction) IsOutgoing() bool {
	return t.Amount.IsNegative()
}

type Category string

const (
	CategoryTransfer       Category = "transfer"
	CategoryCardPayment    Category = "card_payment"
	CategorySalary         Category = "salary"
	CategoryServicePayment Category = "service_payment"
	CategoryOther          Category = "other"
)

func (c Category) String() string {
	return string(c)
}

type Balance struct {
	Amount   decimal.Decimal
	Currency string
}

type AccountDetails struct {
	OwnerName string
	Product   string
}

// TransactionPage - одна страница ответа /transactions. Внутри статуса
// записи идут в том порядке, в котором их отдал агрегатор.
type TransactionPage struct {
	Booked  []Transaction
	Pending []Transaction
}

func (p *TransactionPage) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Booked) + len(p.Pending)
}
