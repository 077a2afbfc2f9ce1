package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Sternrassler/moex-iss-client/internal/testutil"
	"github.com/Sternrassler/moex-iss-client/pkg/client"
)

func setupEnv(t *testing.T, mock *testutil.MockISS) {
	t.Helper()
	t.Setenv("MOEX_ISS_BASE_URL", mock.URL())
	t.Setenv("MOEX_RATE_LIMIT_RPS", "1000")
	t.Setenv("MOEX_RATE_LIMIT_BURST", "100")
	t.Setenv("MOEX_RETRY_LISTING_DELAY", "1ms")
	t.Setenv("MOEX_RETRY_DETAIL_DELAY", "1ms")
	t.Setenv("MOEX_LOG_LEVEL", "error")
	t.Setenv("MOEX_CONFIG", "")
}

func runCmd(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestRun_Usage(t *testing.T) {
	t.Setenv("MOEX_CONFIG", "")

	code, _, stderr := runCmd(t)
	if code != 2 {
		t.Errorf("exit code = %d, want 2", code)
	}
	if !strings.Contains(stderr, "usage: moex-iss") {
		t.Errorf("stderr = %q, want usage", stderr)
	}

	code, _, stderr = runCmd(t, "frobnicate")
	if code != 2 || !strings.Contains(stderr, "unknown command") {
		t.Errorf("unknown command: code = %d, stderr = %q", code, stderr)
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("MOEX_CONFIG", "")
	t.Setenv("MOEX_LOG_LEVEL", "trace")

	code, _, stderr := runCmd(t, "tickers")
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "log.level") {
		t.Errorf("stderr = %q, want validation message", stderr)
	}
}

func TestRun_Ratings(t *testing.T) {
	mock := testutil.NewMockISS()
	defer mock.Close()
	setupEnv(t, mock)

	mock.SetListing(client.DefaultPath, &testutil.Listing{
		Section: "securities",
		Columns: []string{"secid", "shortname"},
		Rows:    [][]any{{"A", "Bond A"}, {"B", "Bond B"}, {"C", "Bond C"}},
	})
	mock.SetBond("A", 5.0, "AAA")
	mock.SetBond("B", 7.0, "AAA")
	mock.SetBond("C", nil, "BBB")

	xlsx := filepath.Join(t.TempDir(), "ratings.xlsx")
	code, stdout, stderr := runCmd(t, "ratings", "-xlsx", xlsx)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr)
	}

	if !strings.Contains(stdout, "AAA                 : 6.00%  (2 bonds)") {
		t.Errorf("stdout = %q, want AAA group", stdout)
	}
	if strings.Contains(stdout, "BBB") {
		t.Errorf("stdout = %q, C has no yield and must not be grouped", stdout)
	}
	if !strings.Contains(stderr, "3/3: C") {
		t.Errorf("stderr = %q, want progress lines", stderr)
	}
	if _, err := os.Stat(xlsx); err != nil {
		t.Errorf("summary workbook not written: %v", err)
	}
}

func TestRun_Tickers(t *testing.T) {
	mock := testutil.NewMockISS()
	defer mock.Close()
	setupEnv(t, mock)

	mock.SetListing(client.DefaultPath, &testutil.Listing{
		Section: "securities",
		Columns: []string{"SECID", "SHORTNAME"},
		Rows:    [][]any{{"B", "b"}, {"A", "a"}, {"B", "b2"}},
	})

	code, stdout, stderr := runCmd(t, "tickers")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr)
	}
	if stdout != "A\nB\n" {
		t.Errorf("stdout = %q, want sorted unique tickers", stdout)
	}
}

func TestRun_SecuritiesCSV(t *testing.T) {
	mock := testutil.NewMockISS()
	defer mock.Close()
	setupEnv(t, mock)

	mock.SetListing(client.DefaultPath, &testutil.Listing{
		Section: "securities",
		Columns: []string{"secid", "shortname"},
		Rows:    [][]any{{"SBER", "Сбербанк"}},
	})

	code, stdout, stderr := runCmd(t, "securities", "-market", "shares", "-format", "csv")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr)
	}
	if stdout != "secid,shortname\nSBER,Сбербанк\n" {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestRun_CandlesCloses(t *testing.T) {
	mock := testutil.NewMockISS()
	defer mock.Close()
	setupEnv(t, mock)

	mock.SetListing("/engines/stock/markets/shares/securities/SBER/candles.json", &testutil.Listing{
		Section:  "candles",
		Columns:  []string{"open", "close"},
		Rows:     [][]any{{270.1, 271.5}, {271.5, 268.25}},
		PageSize: 500,
	})

	code, stdout, stderr := runCmd(t, "candles", "-from", "2023-11-27", "-till", "2023-12-30", "-closes", "SBER")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr)
	}
	if stdout != "271.50\n268.25\n" {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestRun_Beneish(t *testing.T) {
	t.Setenv("MOEX_CONFIG", "")
	path := writeFile(t, "periods.yaml", `
periods:
  - {year: 2023, revenue: 1000, receivables: 80, cogs: 600, current_assets: 300, total_assets: 1000,
     depreciation: 100, ppe: 400, sg_and_a: 120, total_liabilities: 600, net_income: 80, cash_from_ops: 60}
  - {year: 2024, revenue: 1200, receivables: 150, cogs: 800, current_assets: 350, total_assets: 1100,
     depreciation: 90, ppe: 420, sg_and_a: 130, total_liabilities: 650, net_income: 90, cash_from_ops: 20}
`)

	code, stdout, stderr := runCmd(t, "beneish", path)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr)
	}
	for _, want := range []string{"Year 2023", "Not enough data", "Year 2024", "M    = -1.354", "elevated probability"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("stdout missing %q:\n%s", want, stdout)
		}
	}
}

func TestRun_FairValue(t *testing.T) {
	t.Setenv("MOEX_CONFIG", "")
	path := writeFile(t, "polyus.yaml", `
name: Polyus
projected_net_profit: 269.1
historical_pe: 5
shares_outstanding: 0.1349
revenue: 603.2
operating_expenses: 223.3
net_debt: 622.7
interest_rate: 0.07
total_assets: 1200
total_equity: 550
ebitda: 370
free_cash_flow: 250
market_cap: 1600
`)

	code, stdout, stderr := runCmd(t, "fairvalue", path)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr)
	}
	if !strings.Contains(stdout, "Fair price of Polyus: 9348.90") {
		t.Errorf("stdout = %q", stdout)
	}
	if !strings.Contains(stdout, "Net Debt/EBITDA") {
		t.Errorf("stdout = %q, want multiples", stdout)
	}
}

func TestRun_BondUnavailable(t *testing.T) {
	mock := testutil.NewMockISS()
	defer mock.Close()
	setupEnv(t, mock)

	code, _, stderr := runCmd(t, "bond", "NOPE")
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "NOPE unavailable") {
		t.Errorf("stderr = %q", stderr)
	}
}
