// Package esenv provides disposable Elasticsearch servers for tests, with
// instance pooling.
//
// esenv launches real Elasticsearch server processes against temporary data
// directories, waits for them to become ready, and hands out connection
// details through a pooled Manager. Each instance is isolated: its own data
// directory, its own ports, its own single-node cluster. Teardown kills the
// process and deletes its files.
//
// # Basic Usage
//
//	import "github.com/giantswarm/esenv"
//
//	ctx := context.Background()
//
//	mgr := esenv.NewManager()
//	if err := mgr.Initialize(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer mgr.Shutdown()
//
//	inst, err := mgr.Acquire(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer inst.Release() // Returns nil on success; safe to ignore in defer
//
//	client, err := inst.Client()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	// Use the go-elasticsearch client...
//
// # Seed Data
//
// WithSeedDir points the manager at a directory of NDJSON files; each file is
// bulk-indexed into an index named after the file. The resulting data
// directory is cached on disk (keyed by a hash of the seed files), so only
// the first run pays the indexing cost. Every instance starts from a copy of
// the cached data. WithDataFrom skips the indexing step entirely and uses an
// existing data directory as the template.
//
// # Parallel Testing
//
// Instances are created on demand. Use Go's -parallel flag to control concurrency:
//
//	mgr := esenv.NewManager()
//	if err := mgr.Initialize(ctx); err != nil {
//	    t.Fatal(err)
//	}
//	defer mgr.Shutdown()
//
//	for i := 0; i < 10; i++ {
//	    t.Run(fmt.Sprintf("test-%d", i), func(t *testing.T) {
//	        t.Parallel()
//	        inst, err := mgr.Acquire(ctx)
//	        if err != nil {
//	            t.Fatal(err)
//	        }
//	        defer inst.Release() // Returns nil on success; safe to ignore
//	        // ...
//	    })
//	}
//
// # Requirements
//
// A local Elasticsearch installation (and a Java runtime for it) must be
// present. The installation is discovered automatically from ES_HOME, PATH,
// and common install locations; WithElasticsearchHome or WithServerBinary
// override discovery. Use SkipIfNotInstalled in tests that should be skipped
// on machines without Elasticsearch.
package esenv
