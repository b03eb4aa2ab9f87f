package core

import "github.com/shopspring/decimal"

// DemoTransactions returns the demo working set shown on first start.
func DemoTransactions() []Transaction {
	return []Transaction{
		{ID: 1, Title: "Salary", Amount: decimal.NewFromInt(5000), Timestamp: "2023-06-01"},
		{ID: 2, Title: "Rent", Amount: decimal.NewFromInt(-1500), Timestamp: "2023-06-02"},
		{ID: 3, Title: "Groceries", Amount: decimal.NewFromInt(-200), Timestamp: "2023-06-03"},
		{ID: 4, Title: "Freelance Work", Amount: decimal.NewFromInt(1000), Timestamp: "2023-06-04"},
		{ID: 5, Title: "Utilities", Amount: decimal.NewFromInt(-150), Timestamp: "2023-06-05"},
	}
}
