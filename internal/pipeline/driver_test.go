package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/wastetwin/provision-core/internal/entity"
	"github.com/wastetwin/provision-core/internal/fiware"
	"github.com/wastetwin/provision-core/internal/infrastructure/journal"
)

// fakePlatform records dispatched calls and simulates per-key outcomes.
type fakePlatform struct {
	mu        sync.Mutex
	calls     []string
	conflicts map[string]bool
	failures  map[string]bool
	authErr   error
	authed    bool
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		conflicts: make(map[string]bool),
		failures:  make(map[string]bool),
	}
}

func (f *fakePlatform) outcome(call, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call+" "+key)
	if f.failures[key] {
		return fmt.Errorf("%w: injected", fiware.ErrTransport)
	}
	if f.conflicts[key] {
		return fmt.Errorf("%w: injected", fiware.ErrConflict)
	}
	return nil
}

func (f *fakePlatform) Authenticate(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authed = true
	return f.authErr
}

func (f *fakePlatform) CreateEntity(_ context.Context, e entity.BrokerEntity) error {
	return f.outcome("create-entity", e.ID)
}

func (f *fakePlatform) DeleteEntity(_ context.Context, id string) error {
	return f.outcome("delete-entity", id)
}

func (f *fakePlatform) CreateDevice(_ context.Context, device *entity.Entity) error {
	return f.outcome("create-device", device.DeviceID)
}

func (f *fakePlatform) DeleteDevice(_ context.Context, deviceID, _ string) error {
	return f.outcome("delete-device", deviceID)
}

func (f *fakePlatform) CreateGroup(_ context.Context, group *entity.Group) error {
	return f.outcome("create-group", group.APIKey)
}

func (f *fakePlatform) DeleteGroup(_ context.Context, apiKey, protocol string) error {
	return f.outcome("delete-group", apiKey+"/"+protocol)
}

func (f *fakePlatform) sortedCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	calls := append([]string(nil), f.calls...)
	sort.Strings(calls)
	return calls
}

// mixedCSV has a group row, a device-managed row, and a direct row.
const mixedCSV = "entityID,entityType,apiKey,protocol,f:fillingLevel<Number>,category<Text>\n" +
	",WasteContainer,northkey,IoTA-JSON,,\n" +
	"CONTAINER-001,WasteContainer,,IoTA-JSON,,underground\n"

const directCSV = "entityID,entityType,areaServed<Text>\n" +
	"urn:site:depot-north,Depot,North\n"

func TestRun_Create(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "a-mixed.csv", mixedCSV)
	writeFixture(t, dir, "b-direct.csv", directCSV)

	platform := newFakePlatform()
	driver := New(platform, Options{DefaultProtocol: "IoTA-UL"})

	report, err := driver.Run(context.Background(), []string{dir}, Create)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !platform.authed {
		t.Error("Run() did not authenticate")
	}
	if report.Succeeded != 3 || report.Conflicted != 0 || report.Failed != 0 {
		t.Errorf("report = %s, want 3 provisioned", report.Summary())
	}

	want := []string{
		"create-device CONTAINER-001",
		"create-entity urn:site:depot-north",
		"create-group northkey",
	}
	got := platform.sortedCalls()
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRun_DeleteFanOut(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "mixed.csv", mixedCSV)

	platform := newFakePlatform()
	driver := New(platform, Options{DefaultProtocol: "IoTA-UL"})

	report, err := driver.Run(context.Background(), []string{dir}, Delete)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Succeeded != 2 {
		t.Errorf("report = %s, want 2 retracted", report.Summary())
	}

	// Device-managed retraction hits both the agent and the broker.
	want := []string{
		"delete-device CONTAINER-001",
		"delete-entity CONTAINER-001",
		"delete-group northkey/IoTA-JSON",
	}
	got := platform.sortedCalls()
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRun_ConflictsCountedAndNonFatal(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "mixed.csv", mixedCSV)

	platform := newFakePlatform()
	platform.conflicts["northkey"] = true
	driver := New(platform, Options{DefaultProtocol: "IoTA-UL", FailFast: true})

	report, err := driver.Run(context.Background(), []string{dir}, Create)
	if !errors.Is(err, ErrRowsFailed) {
		t.Fatalf("Run() error = %v, want ErrRowsFailed", err)
	}
	if report.Conflicted != 1 || report.Succeeded != 1 || report.Failed != 0 {
		t.Errorf("report = %s, want 1 provisioned, 1 conflicted", report.Summary())
	}
	// The conflict must not have tripped fail-fast.
	if len(report.Rows) != 2 {
		t.Errorf("rows = %d, want 2 (run continued past the conflict)", len(report.Rows))
	}
}

func TestRun_FailFastAborts(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "mixed.csv", mixedCSV)

	platform := newFakePlatform()
	platform.failures["northkey"] = true
	driver := New(platform, Options{DefaultProtocol: "IoTA-UL", FailFast: true})

	report, err := driver.Run(context.Background(), []string{dir}, Create)
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("Run() error = %v, want ErrAborted", err)
	}
	if len(report.Rows) != 1 {
		t.Errorf("rows = %d, want 1 (run stopped at first failure)", len(report.Rows))
	}
}

func TestRun_BestEffortContinues(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "mixed.csv", mixedCSV)

	platform := newFakePlatform()
	platform.failures["northkey"] = true
	driver := New(platform, Options{DefaultProtocol: "IoTA-UL"})

	report, err := driver.Run(context.Background(), []string{dir}, Create)
	if !errors.Is(err, ErrRowsFailed) {
		t.Fatalf("Run() error = %v, want ErrRowsFailed", err)
	}
	if report.Failed != 1 || report.Succeeded != 1 {
		t.Errorf("report = %s, want 1 failed and 1 provisioned", report.Summary())
	}
}

func TestRun_DefectiveFileAbandoned(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "a-bad.csv",
		"entityID,entityType\n"+
			"ROOM-1,\n"+
			"ROOM-2,Room\n")
	writeFixture(t, dir, "b-good.csv", directCSV)

	platform := newFakePlatform()
	driver := New(platform, Options{DefaultProtocol: "IoTA-UL"})

	report, err := driver.Run(context.Background(), []string{dir}, Create)
	if !errors.Is(err, ErrRowsFailed) {
		t.Fatalf("Run() error = %v, want ErrRowsFailed", err)
	}
	// The bad row fails and poisons the rest of its file; the next file
	// is still processed.
	if report.Failed != 1 || report.Succeeded != 1 {
		t.Errorf("report = %s, want 1 failed and 1 provisioned", report.Summary())
	}
	for _, call := range platform.sortedCalls() {
		if call == "create-entity ROOM-2" {
			t.Error("record after the defect was dispatched")
		}
	}
}

func TestRun_AuthFailureIsFatal(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "mixed.csv", mixedCSV)

	platform := newFakePlatform()
	platform.authErr = fiware.ErrUnauthorized
	driver := New(platform, Options{DefaultProtocol: "IoTA-UL"})

	_, err := driver.Run(context.Background(), []string{dir}, Create)
	if !errors.Is(err, fiware.ErrUnauthorized) {
		t.Errorf("Run() error = %v, want ErrUnauthorized", err)
	}
	if len(platform.sortedCalls()) != 0 {
		t.Error("records were dispatched despite failed authentication")
	}
}

func TestRun_JournalsOutcomes(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "mixed.csv", mixedCSV)

	j, err := journal.Open(filepath.Join(dir, "journal.db"))
	if err != nil {
		t.Fatalf("journal.Open() error = %v", err)
	}
	defer j.Close()

	platform := newFakePlatform()
	platform.conflicts["CONTAINER-001"] = true
	driver := New(platform, Options{DefaultProtocol: "IoTA-UL", Journal: j})

	report, err := driver.Run(context.Background(), []string{dir}, Create)
	if !errors.Is(err, ErrRowsFailed) {
		t.Fatalf("Run() error = %v, want ErrRowsFailed", err)
	}
	if report.Conflicted != 1 {
		t.Fatalf("report = %s, want 1 conflicted", report.Summary())
	}

	// The conflicted record must be recoverable from the journal alone.
	if report.RunID == "" {
		t.Fatal("report carries no journal run id")
	}
	rows, err := j.Rows(context.Background(), report.RunID)
	if err != nil {
		t.Fatalf("journal.Rows() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("journalled rows = %d, want 2", len(rows))
	}
	var conflicted *journal.RowOutcome
	for i := range rows {
		if rows[i].Outcome == OutcomeConflict {
			conflicted = &rows[i]
		}
	}
	if conflicted == nil {
		t.Fatal("no conflicted row in the journal")
	}
	if conflicted.Key != "CONTAINER-001" || conflicted.Error == "" {
		t.Errorf("journalled conflict = %+v, want CONTAINER-001 with error text", conflicted)
	}
}
