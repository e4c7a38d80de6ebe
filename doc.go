// Package taskpoll submits queries to an asynchronous analysis API and
// follows the resulting tasks until they finish.
//
// The remote API accepts a multipart submission (a free-text query plus an
// optional dataset file) and either answers immediately or returns a task id.
// A task id is polled on a status endpoint with a backoff schedule until the
// task reports done or error. The final payload is turned into display text
// by an [Extractor] chain.
//
// # Quick Start
//
//	s, err := taskpoll.NewSession(
//	    taskpoll.WithSubmitURL("https://api.example.com/analyze"),
//	    taskpoll.WithStatusURL("https://api.example.com/status/"),
//	)
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer stop()
//
//	out, err := s.Submit(ctx, taskpoll.Query{Text: "Which region grew fastest?"})
//	if err != nil {
//	    return err
//	}
//	fmt.Println(out.Text)
//
// # Polling
//
// Status polls are strictly sequential. The delay before attempt n+1 is
// [DefaultDelays][n], and the last entry repeats once the table runs out:
// 1.2s, 1.5s, 2s, 2.5s, 3s, 3s, ... Override it with [WithDelays] and bound
// the whole run with [WithMaxWait].
//
// Non-2xx responses and transport failures end the run immediately; they are
// not retried. A remote "error" status ends the run with a [*TaskError].
//
// # Observing Progress
//
// A [Session] exposes its state as a [Snapshot]. Register a callback to
// receive every change:
//
//	taskpoll.WithUpdateCallback(func(snap taskpoll.Snapshot) {
//	    if snap.HasProgress {
//	        fmt.Printf("%s %d%%\n", snap.State, snap.Progress)
//	    }
//	})
//
// # Extractors
//
// [DefaultExtractor] tries, in order: a plain string, the [AnswerKeys]
// fields, reply.content and choices[0].message.content. Anything else is
// serialized as JSON. Compose custom chains with [FirstMatch].
//
// # History
//
// [WithHistory] records every finished run per user and domain. Use
// [NewMemoryHistory] for an in-process store, or any type implementing
// [History]. The taskpoll command opens Redis and SQLite stores from
// its configuration through config.OpenHistory.
//
// # Architecture
//
// The package is built from internal packages:
//
//   - internal/poller: HTTP client wrapper, payload decoding, backoff poller
//   - internal/store: run history backends
//   - internal/mockserver: scripted analysis API for local runs and tests
//
// The taskpoll command (cmd/taskpoll) wires these together from a YAML
// config file and environment variables.
package taskpoll
