package dialect

import (
	"bytes"
	"regexp"
)

// maxSniffWindow caps how much of the stream the detector inspects.
const maxSniffWindow = 16 * 1024

type marker struct {
	pattern *regexp.Regexp
	weight  int
}

var (
	postgresStrong = []marker{
		{regexp.MustCompile(`(?i)pg_dump`), 5},
		{regexp.MustCompile(`(?i)SET\s+client_encoding`), 4},
		{regexp.MustCompile(`(?i)SET\s+search_path`), 4},
		{regexp.MustCompile(`(?i)COPY\s+\S+.*FROM\s+stdin`), 5},
		{regexp.MustCompile(`\$[A-Za-z_]*\$`), 4},
		{regexp.MustCompile(`(?i)CREATE\s+EXTENSION`), 4},
		{regexp.MustCompile(`::\w+`), 3},
	}
	mysqlStrong = []marker{
		{regexp.MustCompile(`(?i)--\s*MySQL\s+dump`), 5},
		{regexp.MustCompile(`(?i)--\s*MariaDB\s+dump`), 5},
		{regexp.MustCompile(`/\*!\d+`), 4},
		{regexp.MustCompile(`(?i)LOCK\s+TABLES`), 3},
		{regexp.MustCompile("`[A-Za-z0-9_$]+`"), 2},
		{regexp.MustCompile(`(?i)ENGINE\s*=`), 3},
	}
	sqliteStrong = []marker{
		{regexp.MustCompile(`(?i)--\s*SQLite\s+database\s+dump`), 5},
		{regexp.MustCompile(`(?i)^\s*PRAGMA\s`), 4},
		{regexp.MustCompile(`(?im)^\s*BEGIN\s+TRANSACTION\s*;`), 3},
	}
	mssqlStrong = []marker{
		{regexp.MustCompile(`\[[A-Za-z0-9_ ]+\]`), 2},
		{regexp.MustCompile(`(?im)^\s*GO\s*$`), 3},
		{regexp.MustCompile(`N'[^']*'`), 2},
	}
)

// strongMarkerWeight is the score at or above which a single marker is considered
// "strong" on its own.
const strongMarkerWeight = 4

// Detection is the result of scoring a header window.
type Detection struct {
	Dialect    Dialect
	Confidence Confidence
}

// Detect scores a header window (caller should pass at most the first
// 16 KiB of the stream) and returns the best-fit dialect with a confidence
// tier.
func Detect(window []byte) Detection {
	if len(window) > maxSniffWindow {
		window = window[:maxSniffWindow]
	}

	scores := map[Dialect]int{}
	maxWeight := map[Dialect]int{}
	scores[Postgres], maxWeight[Postgres] = score(window, postgresStrong)
	scores[MySQL], maxWeight[MySQL] = score(window, mysqlStrong)
	scores[SQLite], maxWeight[SQLite] = score(window, sqliteStrong)
	scores[MSSQL], maxWeight[MSSQL] = score(window, mssqlStrong)

	order := []Dialect{Postgres, MySQL, SQLite, MSSQL}

	best := MySQL
	bestScore := -1
	for _, d := range order {
		if scores[d] > bestScore {
			bestScore = scores[d]
			best = d
		} else if scores[d] == bestScore && bestScore > 0 {
			// Tie resolution: Postgres wins ties.
			if d == Postgres {
				best = d
			}
		}
	}

	if bestScore <= 0 {
		return Detection{Dialect: MySQL, Confidence: Low}
	}

	conf := Low
	if maxWeight[best] >= strongMarkerWeight {
		conf = High
	} else if bestScore > 0 {
		conf = Medium
	}

	return Detection{Dialect: best, Confidence: conf}
}

func score(window []byte, markers []marker) (total int, maxSingle int) {
	for _, m := range markers {
		if m.pattern.Match(window) {
			total += m.weight
			if m.weight > maxSingle {
				maxSingle = m.weight
			}
		}
	}
	return
}

// SniffHeader trims buf down to the detector's sniff window size.
func SniffHeader(buf []byte) []byte {
	if len(buf) > maxSniffWindow {
		return bytes.Clone(buf[:maxSniffWindow])
	}
	return buf
}
