// Package services implements the clients for the two chat platforms a migration moves data between.
//
// # Interfaces
//
// The migrator depends only on [SourceReader] and [TargetWriter]. Every call returns a [Result] carrying the
// status code, payload and a formatted message; vendor and transport failures never surface as Go errors or
// panics past this package. Listings are exposed as iter.Seq2 streams which end at the first error.
//
// # Source Implementation
//
// [SourceClient] talks to a Twilio Programmable Chat v2 service using HTTP basic auth.
// Pages are followed through meta.next_page_url and the JSON attributes string of users and channels is decoded
// into typed attributes. Identities that are not positive integers are rejected with 400 before any request.
//
// Status mapping:
//   - transport failure : 503
//   - 401 / 403 : 401
//   - anything else : passed through
//
// # Target Implementation
//
// [TargetClient] talks to the Sendbird Platform API using the Api-Token header.
// Error bodies of the form {error, message, code} are mapped to statuses:
//   - 400201 : 404, which triggers the create fallback in the migrator
//   - 400202 : 409
//   - 400100..400199 : 400
//   - anything else : 500
//
// Requests the platform would refuse (non-numeric user ids, missing profile url, more than four preferred
// languages, missing listing id or admin timestamp in metadata) are rejected with 400 without a request.
//
// # Transport
//
// Both clients share [APIService], which encodes JSON bodies, injects headers and waits on a
// golang.org/x/time/rate limiter before every request.
package services
