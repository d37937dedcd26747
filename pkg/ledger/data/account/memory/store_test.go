package memory

import (
	"testing"

	"github.com/code-payments/code-custody/pkg/ledger/data/account/tests"
)

func TestAccountMemoryStore(t *testing.T) {
	testStore := New()
	teardown := func() {
		testStore.(*store).reset()
	}
	tests.RunTests(t, testStore, teardown)
}
