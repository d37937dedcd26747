package memory

import (
	"testing"

	"github.com/code-payments/code-custody/pkg/ledger/data/signature/tests"
)

func TestSignatureMemoryStore(t *testing.T) {
	testStore := New()
	teardown := func() {
		testStore.(*store).reset()
	}
	tests.RunTests(t, testStore, teardown)
}
