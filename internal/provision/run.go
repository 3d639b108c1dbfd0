package provision

import (
	"context"
	"path/filepath"

	"github.com/open-edge-platform/sdk-provisioner/internal/config/manifest"
	"github.com/open-edge-platform/sdk-provisioner/internal/provider"
	"github.com/open-edge-platform/sdk-provisioner/internal/utils/logger"
)

// Summary collects the results of a run.
type Summary struct {
	RunID        string
	Results      []*Result
	ManifestPath string
	SourcesPath  string
}

// Run provisions providers in order and stops at the first fatal error.
// Reports are written for whatever completed, also on failure.
func (p *Provisioner) Run(ctx context.Context, providers []provider.Provider) (*Summary, error) {
	log := logger.Logger()

	m := manifest.New(p.opts.Platform.Arch)
	summary := &Summary{RunID: m.RunID}
	logger.SetReportTitle(m.RunID)
	log.Infof("run %s: provisioning %d dependencies", m.RunID, len(providers))

	var runErr error
	for _, prov := range providers {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		spec, err := p.BuildSpec(prov)
		if err != nil {
			runErr = err
			break
		}

		res, err := p.Provision(ctx, spec)
		if res != nil {
			summary.Results = append(summary.Results, res)
			m.Add(record(res))
		}
		if err != nil {
			runErr = err
			break
		}
	}

	p.writeReports(m, summary)
	return summary, runErr
}

func (p *Provisioner) writeReports(m *manifest.ProvisionManifest, summary *Summary) {
	log := logger.Logger()

	dir, err := p.helpers.CreateReportDir()
	if err != nil {
		log.Warnf("cannot create report directory: %v", err)
		return
	}

	path := filepath.Join(dir, manifest.FileName(m.RunID))
	if err := manifest.WriteManifestToFile(*m, path); err != nil {
		log.Warnf("cannot write run manifest: %v", err)
	} else {
		summary.ManifestPath = path
		log.Infof("run manifest written to %s", path)
	}

	logger.ReportPath = dir
	if sources, err := logger.WriteListFetchedToFile(); err != nil {
		log.Warnf("cannot write source report: %v", err)
	} else {
		summary.SourcesPath = sources
	}
}

func record(res *Result) manifest.DependencyRecord {
	rec := manifest.DependencyRecord{
		Name:        res.Spec.Name,
		Version:     res.Spec.Version,
		InstallRoot: res.Spec.InstallRoot,
	}
	if res.Tree != nil {
		rec.Method = res.Tree.Method
	}
	if res.Fetch != nil {
		rec.Source = logger.RedactURL(res.Fetch.URL)
		rec.SizeBytes = res.Fetch.Size
		rec.Hash = res.Fetch.SHA256
		rec.HashAlg = "sha256"
	}
	if res.Attempt != nil {
		rec.SourceKind = string(res.Attempt.Source)
	}
	if res.Report != nil {
		rec.Verified = res.Report.Passed
		rec.Missing = res.Report.Missing()
	}
	return rec
}
