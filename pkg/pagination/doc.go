// Package pagination provides sequential page collection for UTS endpoints.
//
// UTS reports pageNumber, pageCount and sometimes recCount in every response
// envelope. The next page to request is derived from the response itself, so
// pages are fetched one after another rather than in parallel.
//
// Example usage:
//
//	out, err := pagination.Collect(ctx, source, "/content/current/CUI/C0009044/atoms", 0)
//	if err != nil {
//		return err // fatal: auth, overload, decode
//	}
//	if out.ServiceError != "" {
//		// recoverable: out.Items holds the records gathered so far
//	}
//
// Collect:
//   - Always fetches page 1
//   - Returns page 1 unmerged when it is the only page
//   - Appends each page's result records in page order
//   - Stops early on a structured service error or the page limit
package pagination
