// Package mockservertest runs an in-process mock server for Go tests.
//
// The server listens on a random local port and is closed when the test
// finishes:
//
//	func TestCheckout(t *testing.T) {
//	    ms := mockservertest.New(t)
//
//	    ms.When(expectation.Request("POST", "/orders")).
//	        Times(1).
//	        Respond(expectation.Response(201).WithBody(`{"id": "o-1"}`))
//
//	    checkout(ms.URL())
//
//	    ms.AssertCalledTimes(t, "POST", "/orders", 1)
//	}
//
// Assertions go through the same verification engine as the
// /mockserver/verify endpoint, so method and path patterns follow the
// usual matching rules, regular expressions included.
package mockservertest
