// Package oxia implements the metadata.MetadataStore interface using Oxia.
//
// Usage:
//
//	store, err := oxia.New(ctx, oxia.Config{
//	    ServiceAddress: "localhost:6648",
//	    Namespace:      "default",
//	    SessionTimeout: 15 * time.Second,
//	})
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
// Ephemeral keys written through PutEphemeral live as long as the client
// session. When the process dies or loses connectivity for longer than the
// session timeout, Oxia deletes them, which is what releases the condenser
// lease.
package oxia
