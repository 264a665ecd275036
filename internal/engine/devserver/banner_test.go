package devserver_test

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/engine/devserver"
)

const page = "<!doctype html>\n<html>\n<body>\n<h1>app</h1>\n</BODY>\n</html>\n"

func TestInjectHTML_Ready(t *testing.T) {
	g := goldie.New(t)
	g.Assert(t, "inject_ready", devserver.InjectHTML([]byte(page), nil))
}

func TestInjectHTML_FailureBanner(t *testing.T) {
	failures := []devserver.Failure{
		{Message: "import cycle detected"},
		{
			Unit:    "src/a.ts",
			Message: "type error",
			Diagnostics: []domain.Diagnostic{
				{Unit: "src/a.ts", Line: 3, Column: 10, Message: `module "./b" has no exported member "x<y>"`},
			},
		},
	}

	g := goldie.New(t)
	g.Assert(t, "inject_failed", devserver.InjectHTML([]byte(page), failures))
}

func TestInjectHTML_NoBody(t *testing.T) {
	g := goldie.New(t)
	g.Assert(t, "inject_fragment", devserver.InjectHTML([]byte("<p>fragment</p>\n"), nil))
}
