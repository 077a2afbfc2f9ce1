// Package bonds lists bonds on ISS and aggregates per-bond details.
//
// A sweep visits a list of secids, fetches yield and credit rating for each
// one under a bounded retry policy and groups the yields by rating:
//
//	svc := bonds.NewService(c, bonds.DefaultConfig())
//	list, _ := svc.ListBoard(ctx, "TQCB")
//	summary, _ := svc.Sweep(ctx, bonds.SecIDs(list), nil)
//	for _, g := range summary.Finalize() {
//	    fmt.Printf("%-20s: avg %.2f%% (%d bonds)\n", g.Rating, g.Mean, g.Count)
//	}
//
// A bond whose details cannot be fetched is reported as unavailable and
// skipped; it never aborts the sweep.
package bonds
