package memory

import "fmt"

func errMissing(kind, id string) error {
	return fmt.Errorf("memory store: %s %s does not exist", kind, id)
}

func errDuplicateID(id string) error {
	return fmt.Errorf("memory store: duplicate id %s", id)
}

func errNegativeBalance(employeeID string, balance int) error {
	return fmt.Errorf("memory store: balance of %s would be %d", employeeID, balance)
}
