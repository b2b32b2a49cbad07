// Package greenchain is the backend for a near-expiry inventory clearance
// marketplace: warehouses upload surplus stock as CSV, lots are scored by
// expiry urgency, a background matcher shortlists registered buyers and
// creates discounted offers, and a voice assistant negotiates orders.
//
// The backend is PostgreSQL-native (pgx): multiple instances run against
// one database, register themselves, heartbeat, and elect a leader that
// runs the maintenance sweeps. Instances coordinate through atomic state
// transitions and LISTEN/NOTIFY events, so no external queue is needed.
//
// # Quick Start
//
//	pool, _ := pgxpool.New(ctx, os.Getenv("DATABASE_URL"))
//	_ = storage.Migrate(ctx, pool)
//
//	client, err := greenchain.NewClient(pool, &greenchain.ClientConfig{
//	    AnthropicClient: &anthropicClient,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := client.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Stop(ctx)
//
//	http.ListenAndServe(":8000", client.Handler())
//
// The cmd/greenchaind binary wraps exactly this wiring behind a CLI.
package greenchain
