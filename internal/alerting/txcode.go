package alerting

import (
	"fmt"
	"hash/fnv"
	"io"
)

// codeSpace bounds the numeric part of derived transaction codes.
const codeSpace = 10_000_000

// TransactionCode derives a deterministic code for a transaction that
// arrived without one. The same account, collector and date always map
// to the same code, which is what keeps alert writes idempotent when a
// batch is resubmitted.
func TransactionCode(accountRef, collector, date string) string {
	h := fnv.New64a()
	io.WriteString(h, accountRef)
	h.Write([]byte{0})
	io.WriteString(h, collector)
	h.Write([]byte{0})
	io.WriteString(h, date)
	return fmt.Sprintf("TX-%d", h.Sum64()%codeSpace)
}
