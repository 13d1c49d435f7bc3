// Package clusterstate owns the per-cluster state of adaptive weighing and the
// keyed registry that guarantees one state per (service, environment).
//
// Usage:
//
//	registry := clusterstate.NewRegistry(logger)
//	state := registry.GetOrCreate(cluster, func() *clusterstate.State {
//	    return clusterstate.New(time.Now(), statisticTTL, weightsTTL)
//	})
//	state.Statistic().Report(outcome)
package clusterstate
