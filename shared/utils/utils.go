package utils

import "github.com/google/uuid"

// TransactionIDPrefix marks identifiers generated for transactions.
const TransactionIDPrefix = "txn"

// GenerateID generates a unique ID with the given prefix. The random part is a
// version 4 UUID, so collisions are not expected across processes.
func GenerateID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
