/*
Package cache stores opaque byte blobs on local disk, addressed by the SHA-1 digest of a
caller-supplied key. It should not be of any concern to the callee whether a value was
cached: the cache is advisory, failures are logged and reported as a miss.

There is no expiry and no size bound. Entries live until deleted or cleared.
*/
package cache
