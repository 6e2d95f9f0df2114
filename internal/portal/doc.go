// Package portal talks to a Skynet portal over HTTP.
//
// It provides:
//   - [Client]: fetches and multipart uploads that record the remote endpoint address
//   - [Resolver]: builds skylink path, skylink subdomain and HNS subdomain URLs
//   - [RegistryClient]: signed registry entry writes and verified reads
//
// Non-2xx responses are returned as [*ResponseError], which keeps the status
// code and body for the health result.
package portal
