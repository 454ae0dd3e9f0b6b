// internal is internal packages for Kanshi.
//
// The packages form a rough layering: ringbuf, checker, schedule, and config
// stand alone at the bottom; anomaly, engine, and notify build on them;
// monitor ties those together; dashboard and discovery sit on top.
// Packages never import upward in this list.
package internal
