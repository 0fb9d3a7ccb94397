// Package rentguard and its sub-packages implement a rental property listing service whose rents are paid over the
// Stellar network.
/*
rentguard provides:

1) a REST service (package api, started with cmd/rentguard) that lists properties, keeps rental agreements with the
 rent payments made against them, and wraps the Stellar network for keypairs, balances, transaction history, test
 account funding, payment building and submission.

2) a client side (packages wallet and client, and the cmd/rentpay CLI) that pays rents signing with either a secret
 seed kept in memory or a signer that holds the keys and never reveals them.

Architecture

The service connects to the ledger networks listed in the JSON config file (package lib/config). A ledger layer
(package lib/ledger) keeps a client per network and the name of the active one; every request resolves its network
once, so switching the active network only affects requests started afterwards. A request can also pin a network with
the "network" query parameter.

Properties and rentals are kept in a record store (package lib/store) with memory, MongoDB and PostgreSQL
implementations selected in the config file. A rent payment is recorded against its rental only after the ledger has
accepted the transaction, and is then published as an event to the message broker (package lib/msg) when one is
configured.

Every response is a JSON envelope {"success":true,...} or {"success":false,"error":"..."}. Malformed requests are
replied with 400, unknown records and unfunded accounts with 404, and unexpected failures with 500.

The service can also be monitored via a Prometheus API by setting the flag "-m" at startup.
*/
package rentguard
