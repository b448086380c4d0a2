package app

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"
)

// Once runs a single price cycle for every configured token and prints the outcome.
func (a *App) Once(ctx context.Context) error {
	rt, err := a.newRuntime(ctx, nil)
	if err != nil {
		return err
	}
	defer rt.close()

	bucket := time.Now().UTC().Truncate(time.Second)
	outcomes, cycleErr := rt.svc.RunCycle(ctx, bucket)

	writer := tabwriter.NewWriter(a.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Token\tSpot\tTWAP\tNormalized\tSamples\tOutliers\tError")
	for _, o := range outcomes {
		errMsg := ""
		if o.Err != nil {
			errMsg = sanitizeInline(o.Err.Error())
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			o.Symbol, formatPrice(o.Spot), formatPrice(o.Price), o.Normalized, o.Samples, o.Outliers, errMsg)
	}
	writer.Flush()
	return cycleErr
}
