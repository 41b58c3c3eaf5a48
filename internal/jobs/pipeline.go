package jobs

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	u "github.com/araddon/gou"

	"github.com/gganty/Gtol/pkgs/graph"
	"github.com/gganty/Gtol/pkgs/layout"
	"github.com/gganty/Gtol/pkgs/lexer"
	"github.com/gganty/Gtol/pkgs/parser"
)

// pipeline runs parse → layout → remap → compressed serialization for one
// job, posting stage-blended progress along the way. It runs entirely on
// the worker goroutine and touches no shared state beyond the job record.
func (m *Manager) pipeline(job *Job, cacheKey string) error {
	started := time.Now()

	job.post(StageReading, 0)
	raw, err := os.ReadFile(job.input())
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	text := string(raw)
	raw = nil

	if trees := lexer.SplitTrees(text); len(trees) > 1 {
		u.Warnf("job %s: document contains %d trees, unifying as one forest", job.ID, len(trees))
	}

	job.post(StageParsing, 10)
	t, err := parser.Parse(text,
		parser.WithLimit(m.cfg.MaxNodes),
		parser.WithProgress(func(p float64) {
			job.post(StageParsing, 10+p*15)
		}),
	)
	if err != nil {
		return err
	}
	text = ""

	job.post(StageLayout, 25)
	g, err := layout.Build(t, m.cfg.Params, func(p float64) {
		job.post(StageLayout, 25+p*75)
	})
	if err != nil {
		return err
	}
	// The logical tree is consumed; let it go before the tables double up
	t = nil

	job.post(StageOptimization, 99)
	ds := graph.FromLayout(g)
	g = nil

	resultPath := filepath.Join(m.cfg.WorkDir, fmt.Sprintf("result_%s.json.gz", job.ID))
	out, err := os.Create(resultPath)
	if err != nil {
		return fmt.Errorf("creating result file: %w", err)
	}
	job.post(StageCompressing, 0)
	err = ds.WriteGzip(out, func(stage string, p float64) {
		job.post(stage, p)
	})
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(resultPath)
		return fmt.Errorf("writing result: %w", err)
	}

	if m.cfg.Cache != nil {
		if err := m.cfg.Cache.Put(cacheKey, resultPath); err != nil {
			u.Warnf("job %s: cache store failed: %v", job.ID, err)
		}
	}

	job.setResultPath(resultPath, false)
	u.Infof("job %s: nodes=%d links=%d in %s", job.ID, len(ds.Nodes), len(ds.Links), time.Since(started).Round(time.Millisecond))
	return nil
}
