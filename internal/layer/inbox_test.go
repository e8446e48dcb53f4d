package layer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/danielpatrickdp/state-weaver/internal/weaver"
)

func record(variable string, value float64) Record {
	return Record{
		Layer: "money", Variable: variable, Value: value,
		Unit: "days", Confidence: 0.9, Direction: weaver.HigherBetter,
	}
}

// 1. A dropped file is collected once and consumed.
func TestInbox_CollectConsumes(t *testing.T) {
	dir := t.TempDir()
	in, err := NewInbox("money", dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := WriteRecords(dir, "reading.json", []Record{record("money.runway_days", 42)}); err != nil {
		t.Fatal(err)
	}

	recs, err := in.Collect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].Variable != "money.runway_days" || recs[0].Value != 42 {
		t.Fatalf("unexpected records: %+v", recs)
	}

	recs, err = in.Collect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 0 {
		t.Errorf("file should be consumed, got %+v", recs)
	}
}

// 2. In-progress temp files are skipped, not consumed.
func TestInbox_SkipsTempFiles(t *testing.T) {
	dir := t.TempDir()
	in, _ := NewInbox("money", dir)
	if err := os.WriteFile(filepath.Join(dir, "half.json.tmp"), []byte("{"), 0o600); err != nil {
		t.Fatal(err)
	}

	recs, err := in.Collect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 0 {
		t.Errorf("expected temp file to be skipped, got %+v", recs)
	}
	if _, err := os.Stat(filepath.Join(dir, "half.json.tmp")); err != nil {
		t.Error("temp file must be left in place")
	}
}

// 3. A malformed file is moved aside and does not block later files.
func TestInbox_RejectsMalformed(t *testing.T) {
	dir := t.TempDir()
	in, _ := NewInbox("money", dir)
	if err := os.WriteFile(filepath.Join(dir, "a-bad.json"), []byte("not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := WriteRecords(dir, "b-good.json", []Record{record("money.cash", 100)}); err != nil {
		t.Fatal(err)
	}

	recs, err := in.Collect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].Variable != "money.cash" {
		t.Fatalf("expected the good file to survive a bad one, got %+v", recs)
	}
	if _, err := os.Stat(filepath.Join(dir, "a-bad.json.rejected")); err != nil {
		t.Error("malformed file should be moved aside with a .rejected suffix")
	}
}

// 4. Validation: out-of-range confidence and unknown direction are rejected.
func TestInbox_ValidatesRecords(t *testing.T) {
	dir := t.TempDir()
	in, _ := NewInbox("money", dir)

	bad := record("money.cash", 1)
	bad.Confidence = 1.5
	if err := WriteRecords(dir, "bad.json", []Record{bad}); err != nil {
		t.Fatal(err)
	}

	recs, err := in.Collect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 0 {
		t.Errorf("expected invalid record to be rejected, got %+v", recs)
	}
}

// 5. Files are processed in name order for replay stability.
func TestInbox_NameOrder(t *testing.T) {
	dir := t.TempDir()
	in, _ := NewInbox("money", dir)
	if err := WriteRecords(dir, "02.json", []Record{record("money.cash", 2)}); err != nil {
		t.Fatal(err)
	}
	if err := WriteRecords(dir, "01.json", []Record{record("money.cash", 1)}); err != nil {
		t.Fatal(err)
	}

	recs, err := in.Collect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || recs[0].Value != 1 || recs[1].Value != 2 {
		t.Fatalf("expected name-ordered records, got %+v", recs)
	}
}

// 6. Single-object files are accepted alongside arrays.
func TestInbox_SingleObjectFile(t *testing.T) {
	dir := t.TempDir()
	in, _ := NewInbox("money", dir)
	body := `{"layer":"money","variable":"money.cash","value":7,"unit":"usd","confidence":1,"direction":"higher_better"}`
	if err := os.WriteFile(filepath.Join(dir, "one.json"), []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	recs, err := in.Collect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].Value != 7 {
		t.Fatalf("unexpected records: %+v", recs)
	}
}
