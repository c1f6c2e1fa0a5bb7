// Package companion implements the client role of Apple's Companion
// protocol, the link an iOS remote uses to drive an Apple TV.
//
// A typical flow:
//
//	// Discover the device (pkg/discovery), then pair once:
//	session, _ := companion.NewSession(companion.Config{Address: addr})
//	creds, err := session.PairSetup(ctx, "1234")
//
//	// Store creds (pkg/credentials), then on every run:
//	session, _ = companion.NewSession(companion.Config{
//		Address:     addr,
//		Credentials: creds,
//	})
//	if err := session.Connect(ctx); err != nil { ... }
//	defer session.Close()
//
//	session.PressButton(ctx, companion.HIDSelect)
//	session.LaunchApp(ctx, "com.netflix.Netflix")
//
// Connect performs Pair-Verify with the stored credentials, installs
// the derived session keys into the transport, and starts a remote
// control session; every subsequent frame on the wire is encrypted
// with ChaCha20-Poly1305.
package companion
