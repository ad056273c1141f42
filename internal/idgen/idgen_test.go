package idgen

import (
	"strings"
	"testing"
)

func TestWithPrefix(t *testing.T) {
	id := WithPrefix("rpt_")
	if !strings.HasPrefix(id, "rpt_") {
		t.Fatalf("missing prefix: %q", id)
	}
	if len(id) != len("rpt_")+24 {
		t.Errorf("len = %d, want %d", len(id), len("rpt_")+24)
	}
	if WithPrefix("rpt_") == id {
		t.Error("expected distinct ids")
	}
}
