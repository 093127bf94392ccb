// Package telship embeds the telship telemetry agent in another program.
//
// # Basic Usage
//
//	cfg := telship.DefaultConfig()
//	cfg.ServiceURL = "https://ingest.example.com"
//	cfg.AuthKey = "your-api-key"
//
//	agent, err := telship.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := agent.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	_ = agent.Emit(ctx, telship.EventGroup{
//	    Source: "app",
//	    Events: []telship.Event{{Category: telship.CategoryLog, Timestamp: time.Now()}},
//	})
//
//	// ... run until shutdown signal ...
//
//	if err := agent.Stop(); err != nil {
//	    log.Printf("shutdown error: %v", err)
//	}
//
// Stop force-flushes every open batch before it returns.
//
// # Batching
//
// Events are grouped per source and tag set. A batch is sealed when it
// reaches MinCount events or MinSizeBytes, when it would pass MaxSizeBytes,
// or when BatchTimeout has elapsed since its first event. With Aligned set, a
// batch is also sealed before a log line from another minute or a metric
// point more than five minutes away from now joins it.
//
// # Dependency Injection
//
//	agent, err := telship.New(cfg,
//	    telship.WithLogger(customLogger),
//	    telship.WithSinkFactory(mySinks),
//	)
package telship
