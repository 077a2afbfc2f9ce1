// Package pagination walks offset-paginated ISS listings to completion.
//
// ISS does not report a total row or page count. A listing is read by
// requesting start=0, 100, 200, ... until a page comes back with no rows,
// or with fewer rows than the page size, in which case it is the last one.
// Pages must therefore be fetched in order, one at a time.
//
// Example usage:
//
//	d := pagination.New(issClient)
//	ds, err := d.FetchAll(ctx, client.Query{Engine: "stock", Market: "bonds", Meta: true})
//	if errors.Is(err, pagination.ErrNoData) {
//		// the listing is empty
//	}
//
// The driver:
//   - Wraps every page fetch in a retry policy (unbounded by default)
//   - Verifies each page's columns against the first page and re-aligns
//     rows whose columns arrive in a different order
//   - Stops with a ColumnMismatchError when the column set changes
//   - Retries a malformed page a limited number of times, then stops and
//     marks the dataset truncated
package pagination
