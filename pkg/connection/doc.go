// Package connection waits for MTP devices to become available.
//
// Phones often enumerate a few seconds after being plugged in, and refuse
// a session while the screen is locked or another program holds the
// device. WaitForDevice polls the enumerator and ConnectWithRetry retries
// Manager.Connect, both with exponential backoff:
//
//  1. Initial delay: 250ms
//  2. Exponential increase: 500ms, 1s, 2s, 4s
//  3. Maximum delay: 5s, repeated until the context ends
//
// Each delay gets up to 10% random jitter.
package connection
