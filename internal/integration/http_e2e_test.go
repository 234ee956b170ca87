//go:build integration || !unit

package integration

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"

	"tripz_dealdesk/internal/adapters/frankfurter"
	httpserver "tripz_dealdesk/internal/adapters/http_server"
	"tripz_dealdesk/internal/app"
	"tripz_dealdesk/internal/domain"
	mysqlrepo "tripz_dealdesk/internal/storage/mysql"
)

// ---------- helpers ----------

func mustEnv(t *testing.T, k string) string {
	t.Helper()
	v := os.Getenv(k)
	if v == "" {
		t.Fatalf("%s not set; export it (e.g. MIGRATIONS_DIR=/path/to/sql)", k)
	}
	return v
}

func applyMigrations(t *testing.T, db *sql.DB) {
	t.Helper()
	dir := mustEnv(t, "MIGRATIONS_DIR")

	st, err := os.Stat(dir)
	if err != nil || !st.IsDir() {
		t.Fatalf("MIGRATIONS_DIR=%s is not a directory or missing", dir)
	}
	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}
	var files []string
	for _, e := range ents {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".sql" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		t.Fatalf("no .sql files in %s", dir)
	}
	sort.Strings(files)
	for _, f := range files {
		sqlBytes, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
		if _, err := db.Exec(string(sqlBytes)); err != nil {
			t.Fatalf("exec %s: %v", f, err)
		}
	}
}

func postJSON(t *testing.T, url string, body string) (*http.Response, []byte) {
	t.Helper()
	res, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer res.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(res.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, buf.Bytes()
}

type calcEnvelope struct {
	Calculation domain.Calculation    `json:"calculation"`
	Warnings    []domain.FieldWarning `json:"warnings"`
}

func decodeCalc(t *testing.T, b []byte) calcEnvelope {
	t.Helper()
	var env calcEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		t.Fatalf("decode calculation: %v (%s)", err, b)
	}
	return env
}

// ---------- the test ----------

func TestHTTP_EndToEnd_DealLifecycle(t *testing.T) {
	// Start isolated MySQL container
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Fatalf("dockertest: %v", err)
	}
	runOpts := &dockertest.RunOptions{
		Repository: "mysql",
		Tag:        "8.0.36",
		Env: []string{
			"MYSQL_ROOT_PASSWORD=root",
			"MYSQL_DATABASE=dealdesk",
		},
	}
	resource, err := pool.RunWithOptions(runOpts, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("run mysql: %v", err)
	}
	t.Cleanup(func() { _ = pool.Purge(resource) })

	hostPort := resource.GetPort("3306/tcp")
	dsn := fmt.Sprintf("root:%s@tcp(127.0.0.1:%s)/%s?parseTime=true&multiStatements=true&charset=utf8mb4,utf8&loc=UTC",
		"root", hostPort, "dealdesk")

	var db *sql.DB
	if err := pool.Retry(func() error {
		var e error
		db, e = sql.Open("mysql", dsn)
		if e != nil {
			return e
		}
		return db.Ping()
	}); err != nil {
		t.Fatalf("connect mysql: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	applyMigrations(t, db)

	// Stub frankfurter endpoint so the display-currency path has rates.
	rateStub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"base":"EUR","date":"2025-08-22","rates":{"USD":1.10,"GBP":0.85}}`)
	}))
	defer rateStub.Close()

	// Real wiring, no fakes below the HTTP boundary.
	repo := mysqlrepo.New(db)
	rateSvc := app.NewRateService(frankfurter.New(rateStub.URL, 5), nil, time.Minute, nil)
	calcSvc := app.NewCalculationService(repo, rateSvc, nil, time.Minute, app.DefaultPolicy())

	srv := httpserver.New()
	srv.MountHandlers(&httpserver.Handlers{Calc: calcSvc, Rates: rateSvc})
	ts := httptest.NewServer(srv.Mux())
	defer ts.Close()

	// 1. Create a deal whose voucher busts the 4-star cap. String and
	// number fields arrive mixed, as spreadsheets tend to send them.
	res, body := postJSON(t, ts.URL+"/v1/calculations", `{
		"hotelName": "Hotel Adler",
		"stars": 4,
		"roomCount": "120",
		"occupancyRate": 62,
		"averagePrice": "58",
		"voucherValue": 50,
		"operationalCosts": "6",
		"projectCostsGross": "12000",
		"vatRate": "0.19",
		"currencyCode": "EUR",
		"actualPrice": "60",
		"tripzMultiplier": "0.75"
	}`)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create: status %d (%s)", res.StatusCode, body)
	}
	created := decodeCalc(t, body)
	id := created.Calculation.ID
	if id == "" || created.Calculation.Version != 1 {
		t.Fatalf("unexpected calculation: %+v", created.Calculation)
	}
	if created.Calculation.Approval.Status != domain.ApprovalRequiredNotSent {
		t.Fatalf("status = %s, want %s (reasons %v)",
			created.Calculation.Approval.Status, domain.ApprovalRequiredNotSent, created.Calculation.Approval.Reasons)
	}
	if len(created.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", created.Warnings)
	}

	// 2. Read it back with an ETag, then revalidate.
	getURL := fmt.Sprintf("%s/v1/calculations/%s", ts.URL, id)
	getRes, err := http.Get(getURL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	etag := getRes.Header.Get("ETag")
	getRes.Body.Close()
	if getRes.StatusCode != http.StatusOK || etag == "" {
		t.Fatalf("GET: status %d etag %q", getRes.StatusCode, etag)
	}

	req, _ := http.NewRequest(http.MethodGet, getURL, nil)
	req.Header.Set("If-None-Match", etag)
	condRes, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("conditional GET: %v", err)
	}
	condRes.Body.Close()
	if condRes.StatusCode != http.StatusNotModified {
		t.Fatalf("conditional GET: status %d, want 304", condRes.StatusCode)
	}

	// 3. Display currency converts metrics at the boundary only.
	usdRes, err := http.Get(getURL + "?currency=USD")
	if err != nil {
		t.Fatalf("GET USD: %v", err)
	}
	var usd domain.Calculation
	if err := json.NewDecoder(usdRes.Body).Decode(&usd); err != nil {
		t.Fatalf("decode USD view: %v", err)
	}
	usdRes.Body.Close()
	// net 44.00 EUR (voucher 50 - opcosts 6) at 1.10
	if usd.Derived.NetPrice.StringFixed(2) != "48.40" {
		t.Fatalf("netPrice = %s USD, want 48.40", usd.Derived.NetPrice)
	}

	// 4. An override without justification is rejected whole.
	res, body = postJSON(t, ts.URL+"/v1/calculations/"+id+"/overrides", `{
		"field": "voucherValue", "newValue": "40", "justification": "  ", "version": 1
	}`)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("empty justification: status %d (%s)", res.StatusCode, body)
	}

	// 5. A justified override lands in the ledger and re-derives.
	res, body = postJSON(t, ts.URL+"/v1/calculations/"+id+"/overrides", `{
		"field": "voucherValue", "newValue": "40", "justification": "renegotiated", "version": 1
	}`)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("override: status %d (%s)", res.StatusCode, body)
	}
	var overridden struct {
		Calculation domain.Calculation   `json:"calculation"`
		LedgerEntry domain.OverrideEntry `json:"ledgerEntry"`
	}
	if err := json.Unmarshal(body, &overridden); err != nil {
		t.Fatalf("decode override response: %v", err)
	}
	if overridden.Calculation.Version != 2 {
		t.Fatalf("version = %d, want 2", overridden.Calculation.Version)
	}
	if overridden.Calculation.Derived.RoomNights != 300 { // 12000 / 40
		t.Fatalf("roomNights = %d, want 300", overridden.Calculation.Derived.RoomNights)
	}
	if overridden.LedgerEntry.PreviousValue != "50" || overridden.LedgerEntry.NewValue != "40" {
		t.Fatalf("unexpected ledger entry: %+v", overridden.LedgerEntry)
	}
	// still above the 35 cap: approval remains required
	if overridden.Calculation.Approval.Status != domain.ApprovalRequiredNotSent {
		t.Fatalf("status = %s, want %s", overridden.Calculation.Approval.Status, domain.ApprovalRequiredNotSent)
	}

	listRes, err := http.Get(ts.URL + "/v1/calculations/" + id + "/overrides")
	if err != nil {
		t.Fatalf("GET overrides: %v", err)
	}
	var ledger struct {
		Items []domain.OverrideEntry `json:"items"`
	}
	if err := json.NewDecoder(listRes.Body).Decode(&ledger); err != nil {
		t.Fatalf("decode ledger: %v", err)
	}
	listRes.Body.Close()
	if len(ledger.Items) != 1 || ledger.Items[0].Justification != "renegotiated" {
		t.Fatalf("unexpected ledger: %+v", ledger.Items)
	}

	// 6. Submit, then approve.
	res, body = postJSON(t, ts.URL+"/v1/calculations/"+id+"/approval/submit", `{
		"businessJustification": "strategic account", "version": 2
	}`)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("submit: status %d (%s)", res.StatusCode, body)
	}
	submitted := decodeCalc(t, body)
	if submitted.Calculation.Approval.Status != domain.ApprovalPending {
		t.Fatalf("status = %s, want %s", submitted.Calculation.Approval.Status, domain.ApprovalPending)
	}

	res, body = postJSON(t, ts.URL+"/v1/calculations/"+id+"/approval/decision", `{
		"approve": true, "decidedBy": "k.moser", "version": 3
	}`)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("decide: status %d (%s)", res.StatusCode, body)
	}
	decided := decodeCalc(t, body)
	if decided.Calculation.Approval.Status != domain.ApprovalApproved || decided.Calculation.Approval.DecidedBy != "k.moser" {
		t.Fatalf("unexpected decision: %+v", decided.Calculation.Approval)
	}

	// 7. A write against a stale version conflicts.
	res, body = postJSON(t, ts.URL+"/v1/calculations/"+id+"/recompute", `{
		"stars": 4, "voucherValue": "40", "averagePrice": "58",
		"operationalCosts": "6", "projectCostsGross": "12000",
		"vatRate": "0.19", "currencyCode": "EUR",
		"actualPrice": "60", "tripzMultiplier": "0.75", "version": 1
	}`)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("stale recompute: status %d (%s)", res.StatusCode, body)
	}

	// 8. The rates endpoint serves the live snapshot.
	ratesRes, err := http.Get(ts.URL + "/v1/rates")
	if err != nil {
		t.Fatalf("GET rates: %v", err)
	}
	var snap domain.RateSnapshot
	if err := json.NewDecoder(ratesRes.Body).Decode(&snap); err != nil {
		t.Fatalf("decode rates: %v", err)
	}
	ratesRes.Body.Close()
	if snap.IsFallback || snap.Rates["USD"].StringFixed(2) != "1.10" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}
