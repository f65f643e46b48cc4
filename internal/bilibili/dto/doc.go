// Package dto contains the typed JSON shapes of the Bilibili web API.
//
// Every response is decoded once into an Envelope and validated at this
// boundary; the rest of the program only sees model types.
package dto
