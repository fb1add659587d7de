// Package api serves the mock server's control plane under /mockserver/.
//
// Every operation is a PUT with a JSON body, mirroring the established
// MockServer REST API:
//
//	PUT /mockserver/expectation     create or replace expectations (201)
//	PUT /mockserver/clear           remove expectations and/or logged requests
//	PUT /mockserver/reset           remove everything
//	PUT /mockserver/retrieve        list requests, log entries or expectations
//	PUT /mockserver/verify          count verification (202 or 406)
//	PUT /mockserver/verifySequence  sequence verification (202 or 406)
//	PUT /mockserver/status          server status
//
// GET /mockserver/metrics and GET /mockserver/dashboard/ws are served when
// the server enables them. Errors are JSON bodies of the form
// {"error": code, "message": text}; a failed verification is the exception
// and answers 406 with the failure message as plain text.
package api
