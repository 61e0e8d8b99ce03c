/*
Package session coordinates access to souls and their transcripts.

Guard enforces the single-thread-of-control rule of a soul: while one
perception is being processed, any other perception for the same soul is
rejected with a *domain.ReentrancyError. Queueing is left to the host.

Manager serializes transcript reads and writes per transcript ID, integrating
an in-process lock table with an optional distributed ports.Locker.
*/
package session
