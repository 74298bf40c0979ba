// Package influxdb records bridge telemetry in InfluxDB v2.
//
// Every connectivity poll and every display update becomes one point:
//
//	syncsign_connectivity,entry_id=..,asset_id=..,kind=node connected=true,ok=true,duration_ms=212i
//	syncsign_dispatch,entry_id=..,node_id=.. ok=false,duration_ms=10004i
//
// Writes are non-blocking and batched (batch_size, flush_interval). Write
// failures arrive asynchronously through SetOnError.
package influxdb
