// Package tap is a client for the Table Access Protocol service of the Keck
// Observatory Archive.
//
// # Overview
//
// The client submits ADQL queries either synchronously (POST {base}/sync,
// the result is the response body) or asynchronously through the UWS job
// pattern:
//
//  1. POST {base}/async with request=doQuery, lang=ADQL, phase=RUN, format,
//     maxrec and query. Redirects are not followed.
//  2. The service answers 303 See Other; the Location header is the job's
//     status URL.
//  3. The status URL is polled (immediately, then every PollInterval) and
//     the UWS job document is parsed for its phase.
//  4. COMPLETED jobs carry a result reference that is downloaded to the
//     caller's path, or parsed into a table.Table when no path is given.
//
// # Files
//
//   - client.go: Client, submission, result retrieval
//   - poll.go: the poll loop
//   - job.go: Job handle and JobStatus snapshots
//   - query.go: Query and its form encoding
//   - uws.go: UWS job document and phases
//   - reply.go: JSON status envelopes and VOTABLE error documents
//   - result.go: result destinations
//   - errors.go: the Error taxonomy
//
// # Errors
//
// Failures talking to the service are reported as *Error. Match categories with errors.Is
// against ErrTransport, ErrProtocol, ErrServer, ErrJobFailed, ErrLocalIO and ErrCanceled,
// or use errors.As to read Kind, Op and Message:
//
//	res, err := client.SubmitAsync(ctx, tap.NewQuery(adql), "out.xml")
//	if errors.Is(err, tap.ErrServer) {
//		// the query was rejected before a job existed
//	}
//
// Server messages are never guessed at. Bodies that are neither a JSON
// status envelope nor a VOTABLE error document are reported verbatim.
//
// Context cancellation and the optional poll timeout stop polling with
// KindCanceled. The cause is wrapped, so errors.Is(err, context.Canceled)
// and errors.Is(err, tap.ErrPollTimeout) work. Caller mistakes found before
// a request is sent, such as an empty query or an unparsable job URL, are
// reported with KindProtocol.
//
// # Concurrency
//
// A Client is safe for concurrent use. A Job allows one status request at a
// time; concurrent Refresh calls queue behind it and are applied in order.
package tap
