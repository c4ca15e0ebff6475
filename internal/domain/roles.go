package domain

import (
	"regexp"
	"strings"

	m "rie.dev/pkg/rie/internal/model"
)

// roleSignals is one row of the role rule table.
type roleSignals struct {
	role    m.EntryRole
	score   float64
	imports map[string]bool
	pattern *regexp.Regexp
}

// roleTable is evaluated top to bottom; the first row with a matching signal wins.
var roleTable = []roleSignals{
	{
		role:  m.EntryBoot,
		score: 1.0,
		imports: setOf("flask", "fastapi", "django", "aiohttp", "uvicorn", "tornado", "starlette",
			"sanic", "gunicorn", "http.server", "socketserver", "bottle", "falcon", "quart", "grpc",
			"net/http", "github.com/gin-gonic/gin", "github.com/labstack/echo/v4", "google.golang.org/grpc"),
		pattern: regexp.MustCompile(`\b(?:app\.run|uvicorn\.run|serve_forever|run_forever|ListenAndServe|make_server|web\.run_app)\s*\(|\.(?:bind|listen|serve)\s*\(`),
	},
	{
		role:  m.EntryDriver,
		score: 0.8,
		imports: setOf("schedule", "apscheduler", "celery", "rq", "dramatiq", "kombu", "pika", "kafka",
			"confluent_kafka", "multiprocessing", "github.com/robfig/cron/v3"),
		pattern: regexp.MustCompile(`(?m)^\s*while\s+(?:True|1)\s*:|^\s*for\s*\{\s*$|\bschedule\.every\(`),
	},
	{
		role:    m.EntryTool,
		score:   0.6,
		imports: setOf("argparse", "click", "typer", "fire", "docopt", "optparse", "flag", "github.com/spf13/cobra"),
		pattern: regexp.MustCompile(`\bsys\.argv\b|\bos\.Args\b`),
	},
	{
		role:    m.EntryTest,
		score:   0.1,
		imports: setOf("unittest", "pytest", "nose", "hypothesis", "testing", "github.com/stretchr/testify/assert"),
	},
}

func setOf(items ...string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, item := range items {
		out[item] = true
	}

	return out
}

// ClassifyRole maps structural signals of an entrypoint to its role. Precedence is
// boot > driver > tool > test.
func ClassifyRole(file m.FileNode, content []byte, imports []string) m.EntryRole {
	for _, row := range roleTable {
		if row.role == m.EntryTest && file.Role == m.RoleTest {
			return m.EntryTest
		}

		for _, imp := range imports {
			if row.imports[imp] || row.imports[topLevel(imp)] {
				return row.role
			}
		}

		if row.pattern != nil && row.pattern.Match(content) {
			return row.role
		}
	}

	return m.EntryUnknown
}

// RoleScore is the fixed sub-score of a role.
func RoleScore(role m.EntryRole) float64 {
	for _, row := range roleTable {
		if row.role == role {
			return row.score
		}
	}

	return 0
}

func topLevel(module string) string {
	if strings.Contains(module, "/") {
		return module
	}

	if i := strings.Index(module, "."); i > 0 {
		return module[:i]
	}

	return module
}
