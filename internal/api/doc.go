// Package api is the HTTP transport for the upscaler daemon.
//
// It is built on gin and stays thin: handlers validate transport-level input
// (multipart fields, extension or content type, size limit), delegate to the
// pipeline supervisor, and translate its errors into status codes. Every error
// body has the shape {"error":{"code":"...","message":"..."}}.
//
// # Endpoints
//
//	GET    /                  service banner
//	GET    /health            liveness plus stage readiness
//	POST   /enhance_video     multipart upload (file, model, scale) -> 202
//	GET    /status/:job_id    polling view
//	GET    /download/:job_id  enhanced video, 202 while processing, 400 if failed
//	DELETE /job/:job_id       cancel and purge
//	GET    /models            enhancement models and availability
//	GET    /history           recent terminal outcomes from the ledger
package api
