// # Response Helpers
//
//	httputil.WriteSuccess(w, metrics)
//	httputil.WriteCreated(w, event)
//	httputil.WriteError(w, http.StatusInternalServerError, err)
//
// Every error body has the form {"error": "<message>"}.
//
// # Request Parsing
//
//	var req LogUsageRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // 400 already written
//	}
//	days, ok := httputil.ParseQueryIntOrError(w, r, "days", analytics.DefaultTrendDays)
//	feature, ok := httputil.ParsePathStringOrError(w, r, "feature_name")
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware(logger),
//		httputil.LoggingMiddleware,
//		httputil.RecoveryMiddleware,
//		httputil.CORSMiddleware([]string{"*"}),
//		httputil.MaxBytesMiddleware(1<<20),
//	)(router)
package httputil
